// Package stream follows a job's status over Server-Sent Events.
//
// Client keeps at most one open Connection per job id: connecting again for
// the same job closes the previous connection first. Every data block is
// decoded and validated into a StatusMessage. A malformed message closes the
// connection with a validation error, a transport failure closes it with a
// connection error, and a terminal message (completed or error) closes it
// after delivery. There is no automatic reconnect.
package stream
