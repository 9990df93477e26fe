// Package api handles incoming HTTP requests for the task API: request
// decoding and validation, mapping service errors to status codes, and
// response formatting. It adapts HTTP to service.TaskService.
package api
