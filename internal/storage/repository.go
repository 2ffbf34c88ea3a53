package storage

import (
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/events"
	"github.com/piyush-mk/NeoFi-Backend-API/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Events() events.Store
	Users() users.Repository
}
