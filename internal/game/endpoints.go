package game

import "net/http"

// DefaultBaseURL is the game backend.
const DefaultBaseURL = "https://backend.babydogepawsbot.com"

// Endpoint is one remote operation of the game backend.
type Endpoint struct {
	Name   string
	Method string
	Path   string
	// Form sends the body as application/x-www-form-urlencoded instead of JSON.
	Form bool
	// Anonymous endpoints are called without the x-api-key header.
	Anonymous bool
}

var (
	EndpointAuthorize       = Endpoint{Name: "authorize", Method: http.MethodPost, Path: "/authorize", Form: true, Anonymous: true}
	EndpointGetMe           = Endpoint{Name: "getMe", Method: http.MethodGet, Path: "/getMe"}
	EndpointMine            = Endpoint{Name: "mine", Method: http.MethodPost, Path: "/mine"}
	EndpointListCards       = Endpoint{Name: "listCards", Method: http.MethodGet, Path: "/cards"}
	EndpointUpgradeCard     = Endpoint{Name: "upgradeCard", Method: http.MethodPost, Path: "/cards"}
	EndpointListChannels    = Endpoint{Name: "listChannels", Method: http.MethodGet, Path: "/channels"}
	EndpointResolveChannel  = Endpoint{Name: "resolveChannel", Method: http.MethodPost, Path: "/channels-resolve"}
	EndpointPickChannel     = Endpoint{Name: "pickChannel", Method: http.MethodPost, Path: "/channels"}
	EndpointGetDailyBonuses = Endpoint{Name: "getDailyBonuses", Method: http.MethodGet, Path: "/getDailyBonuses"}
	EndpointPickDailyBonus  = Endpoint{Name: "pickDailyBonus", Method: http.MethodPost, Path: "/pickDailyBonus"}
	EndpointGetPromo        = Endpoint{Name: "getPromo", Method: http.MethodGet, Path: "/promo"}
	EndpointPickPromo       = Endpoint{Name: "pickPromo", Method: http.MethodPost, Path: "/promo"}
	EndpointListFriends     = Endpoint{Name: "listFriends", Method: http.MethodGet, Path: "/friends"}
	EndpointGetBoosts       = Endpoint{Name: "getBoosts", Method: http.MethodGet, Path: "/boosts"}
	EndpointUseBoost        = Endpoint{Name: "useBoost", Method: http.MethodPost, Path: "/boosts"}
)

// BoostFullEnergy refills energy to its maximum.
const BoostFullEnergy = "full_energy"
