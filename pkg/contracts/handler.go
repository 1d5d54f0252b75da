package contracts

import "github.com/julienschmidt/httprouter"

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Guard wraps a route that may only be served to an authenticated admin.
type Guard func(httprouter.Handle) httprouter.Handle
