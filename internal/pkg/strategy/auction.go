package strategy

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"
)

type Auction interface {
	Name() string
	Bid(prize *big.Int) *big.Int
}

// Share bids a fixed percentage of the prize, or a uniform one in [Min, Max] when
// the bounds differ.
type Share struct {
	name string
	Min  int64
	Max  int64
}

var auctionStyles = map[string]Share{
	"conservative": {name: "conservative", Min: 30, Max: 30},
	"neutral":      {name: "neutral", Min: 50, Max: 50},
	"aggressive":   {name: "aggressive", Min: 62, Max: 62},
	"random":       {name: "random", Min: 20, Max: 80},
}

func ParseAuction(name string) (Auction, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = "neutral"
	}

	style, ok := auctionStyles[n]
	if !ok {
		return nil, fmt.Errorf("unknown auction strategy %q", name)
	}

	return style, nil
}

func (s Share) Name() string { return s.name }

// Bid never returns less than one wei. A nil prize counts as zero.
func (s Share) Bid(prize *big.Int) *big.Int {
	if prize == nil {
		return big.NewInt(1)
	}

	percent := s.Min
	if s.Max > s.Min {
		percent += rand.Int64N(s.Max - s.Min + 1)
	}

	bid := new(big.Int).Mul(prize, big.NewInt(percent))
	bid.Div(bid, big.NewInt(100))

	if bid.Sign() <= 0 {
		return big.NewInt(1)
	}

	return bid
}
