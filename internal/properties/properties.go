package properties

import "os"

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

// EarthdataToken is the bearer token sent to the credential provider
// endpoints; the request carries no Authorization header when empty.
func EarthdataToken() string {
	return os.Getenv("EARTHDATA_TOKEN")
}

func CredentialEndpoint() string {
	return os.Getenv("CREDENTIAL_ENDPOINT")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}
func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}
