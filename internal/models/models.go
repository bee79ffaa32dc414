package models

// UserState is the reviewer bot's per-chat conversation state.
type UserState struct {
	UserID      int64
	CurrentStep string
	TempData    map[string]interface{}
}

// GetString returns TempData[key] when it holds a string.
func (s *UserState) GetString(key string) string {
	if s.TempData == nil {
		return ""
	}
	val, ok := s.TempData[key]
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}
