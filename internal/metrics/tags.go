package metrics

import "fmt"

// Tag creates a formatted DataDog tag string in "key:value" format.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

// OperationTag creates an operation tag.
func OperationTag(op string) string {
	return Tag("operation", op)
}

// BackendTag creates a vendor or model backend tag.
func BackendTag(backend string) string {
	return Tag("backend", backend)
}

// StatusTag creates a status tag (hit/miss/success/failure).
func StatusTag(status string) string {
	return Tag("status", status)
}

// LayerTag creates a cache layer tag (memory/redis/sqlite).
func LayerTag(layer string) string {
	return Tag("layer", layer)
}

// CircuitStateTag creates a circuit breaker state tag.
func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}

func RoleTag(role string) string {
	return Tag("role", role)
}

func ModelTag(model string) string {
	return Tag("model", model)
}
