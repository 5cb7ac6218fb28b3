// Package analysisapi is the HTTP client for the remote analysis service:
// the reachability probe, the multipart upload that creates a job, and the
// results fetch. The status stream lives in package stream.
//
// Every failure is classified with the services error codes so the workflow
// can surface it without inspecting transport details.
package analysisapi
