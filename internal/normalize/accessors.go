package normalize

// String reads a string argument, unwrapping and coercing it. Tool bodies
// call this even after the invoker has normalized, since they may be
// reached through other paths.
func String(args map[string]any, key, fallback string) string {
	v := NormalizeValue(args[key], Param{Name: key, Type: "string", Default: fallback, HasDefault: true})
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// Int reads an integer argument.
func Int(args map[string]any, key string, fallback int) int {
	i, ok := NormalizeValue(args[key], Param{Name: key, Type: "integer", Default: fallback, HasDefault: true}).(int)
	if !ok {
		return fallback
	}
	return i
}

// Bool reads a boolean argument.
func Bool(args map[string]any, key string, fallback bool) bool {
	b, ok := NormalizeValue(args[key], Param{Name: key, Type: "boolean", Default: fallback, HasDefault: true}).(bool)
	if !ok {
		return fallback
	}
	return b
}
