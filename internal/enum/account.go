package enum

type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodOAuth2   AuthMethod = "oauth2"
	AuthMethodLogin    AuthMethod = "login"
)

func (a AuthMethod) String() string {
	return string(a)
}

type ESPType string

const (
	ESPWebmail       ESPType = "Webmail"
	ESPTransactional ESPType = "Transactional"
	ESPMarketing     ESPType = "Marketing"
	ESPSupport       ESPType = "Support"
	ESPCustom        ESPType = "Custom"
	ESPOther         ESPType = "Other"
)

func (t ESPType) String() string {
	return string(t)
}

type EntityType string

const (
	ACCOUNT       EntityType = "ACCOUNT"
	SYNC_PROGRESS EntityType = "SYNC_PROGRESS"
)

func (e EntityType) String() string {
	return string(e)
}
