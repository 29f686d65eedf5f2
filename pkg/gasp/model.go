// Package gasp holds the plain Gasp! domain records. They are produced
// elsewhere and reach the gateway only as the trigger for a notification;
// the gateway never persists them.
package gasp

// Entity kinds accepted by the domain-event intake.
const (
	KindReviews     = "reviews"
	KindRestaurants = "restaurants"
	KindUsers       = "users"
)

// KnownKind reports whether kind names one of the Gasp! entity collections.
func KnownKind(kind string) bool {
	switch kind {
	case KindReviews, KindRestaurants, KindUsers:
		return true
	}
	return false
}

type Review struct {
	ID           int    `json:"id"`
	Comment      string `json:"comment,omitempty"`
	Star         string `json:"star,omitempty"`
	RestaurantID int    `json:"restaurant_id,omitempty"`
	UserID       int    `json:"user_id,omitempty"`
}

type Restaurant struct {
	ID      int    `json:"id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Website string `json:"website,omitempty"`
}

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}
