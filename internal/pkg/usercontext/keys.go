package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	LocalsKey  = "USER_CONTEXT"
	KeyTokenID = "token_id"
)
