package auth

// Scopes understood by the progression API.
const (
	ScopeWorkoutsWrite = "workouts:write"
	ScopeWorkoutsRead  = "workouts:read"
)
