// Package api contains the HTTP handlers, request/response models, and
// router for the task-tracking API. Handlers translate between the wire
// format and the services; all business rules live below this layer.
package api
