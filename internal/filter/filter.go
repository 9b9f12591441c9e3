package filter

// ShouldPersist decides whether a notification with status is acted upon.
// toggles maps a provider status to its settings key; a nil map means the provider has
// no status vocabulary and every notification is persisted. Settings default to true.
func ShouldPersist(status string, toggles map[string]string, settings map[string]bool) bool {
	key, ok := toggles[status]
	if !ok {
		return true
	}

	enabled, ok := settings[key]
	if !ok {
		return true
	}
	return enabled
}
