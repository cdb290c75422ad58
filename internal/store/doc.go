// Package store defines the persistence interfaces consumed by the service
// layer, the shared sentinel errors, and the transaction helpers. Concrete
// implementations live under internal/platform.
package store
