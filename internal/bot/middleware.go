package bot

func (b *Bot) withRecovery(kind *string, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			*kind = "panic"
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}
