package config

const redacted = "***"

// Redacted returns a copy of the config safe for logging: credentials are
// masked and slices are copied so the original is never aliased.
func (c Config) Redacted() Config {
	out := c

	if out.Postgres.DSN != "" {
		out.Postgres.DSN = redacted
	}
	out.Postgres.Password = redact(out.Postgres.Password)
	out.Redis.Password = redact(out.Redis.Password)
	out.Archive.AccessKey = redact(out.Archive.AccessKey)
	out.Archive.SecretKey = redact(out.Archive.SecretKey)
	out.Notify.TelegramToken = redact(out.Notify.TelegramToken)
	out.Notify.TelegramChatID = redact(out.Notify.TelegramChatID)
	out.Notify.DiscordWebhookURL = redact(out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), c.Notify.Events...)

	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
