package version

const (
	AppName        = "Server Otaku"
	AppDescription = "Music, levels and moderation for community servers"
)
