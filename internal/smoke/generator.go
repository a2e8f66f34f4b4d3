package smoke

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

var (
	firstNames = []string{"Ada", "Grace", "Alan", "Edsger", "Barbara", "Ken", "Margaret", "Dennis"} //nolint:gochecknoglobals // fixture names
	lastNames  = []string{"Lovelace", "Hopper", "Turing", "Dijkstra", "Liskov", "Thompson", "Hamilton", "Ritchie"} //nolint:gochecknoglobals // fixture names
)

// generateGuests creates n payloads. The last name carries a uuid suffix so
// rows from one run are easy to find with the admin search.
func generateGuests(n int) []Payload {
	out := make([]Payload, n)
	for i := range out {
		id := uuid.NewString()
		p := Payload{
			FirstName: pick(firstNames),
			LastName:  pick(lastNames) + "-" + id[:8],
		}
		if i%emailEvery != 0 {
			email := strings.ToLower(p.FirstName) + "." + id + "@example.com"
			p.Email = &email
		}
		if i%2 == 0 {
			number := "555-" + id[9:13]
			p.Number = &number
		}
		out[i] = p
	}
	return out
}

func pick(from []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(from))))
	if err != nil {
		return from[0]
	}
	return from[n.Int64()]
}
