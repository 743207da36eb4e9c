package arena

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Variant string

const (
	VariantRPS     Variant = "rps"
	VariantPoker   Variant = "poker"
	VariantAuction Variant = "auction"
)

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantRPS, VariantPoker, VariantAuction:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
	}
}

type MatchStatus uint8

const (
	MatchCreated MatchStatus = iota
	MatchActive
	MatchSettled
	MatchCancelled
)

func (s MatchStatus) String() string {
	switch s {
	case MatchCreated:
		return "created"
	case MatchActive:
		return "active"
	case MatchSettled:
		return "settled"
	case MatchCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// EscrowMatch is the ledger's record of a wagered match. Only the ledger mutates it.
type EscrowMatch struct {
	ID           uint64
	Player1      common.Address
	Player2      common.Address
	Wager        *big.Int
	GameContract common.Address
	Status       MatchStatus
	CreatedAt    time.Time
}

// Seat returns 0 for player1, 1 for player2.
func (m *EscrowMatch) Seat(addr common.Address) (int, bool) {
	return seatOf([2]common.Address{m.Player1, m.Player2}, addr)
}

func (m *EscrowMatch) Opponent(addr common.Address) common.Address {
	if addr == m.Player1 {
		return m.Player2
	}

	return m.Player1
}

func seatOf(players [2]common.Address, addr common.Address) (int, bool) {
	switch addr {
	case players[0]:
		return 0, true
	case players[1]:
		return 1, true
	default:
		return -1, false
	}
}

// Receipt is a confirmed, successful transaction.
type Receipt struct {
	TxHash      common.Hash
	GasUsed     uint64
	BlockNumber uint64
	Logs        []*types.Log
}

type Move uint8

const (
	MoveNone Move = iota
	MoveRock
	MovePaper
	MoveScissors
)

func (m Move) String() string {
	switch m {
	case MoveRock:
		return "rock"
	case MovePaper:
		return "paper"
	case MoveScissors:
		return "scissors"
	default:
		return "none"
	}
}

func (m Move) Valid() bool {
	return m >= MoveRock && m <= MoveScissors
}

// Beats reports whether m wins against other.
func (m Move) Beats(other Move) bool {
	return (m == MoveRock && other == MoveScissors) ||
		(m == MovePaper && other == MoveRock) ||
		(m == MoveScissors && other == MovePaper)
}

// Counter returns the move that beats m.
func (m Move) Counter() Move {
	switch m {
	case MoveRock:
		return MovePaper
	case MovePaper:
		return MoveScissors
	case MoveScissors:
		return MoveRock
	default:
		return MoveNone
	}
}

func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "1":
		return MoveRock, nil
	case "paper", "2":
		return MovePaper, nil
	case "scissors", "3":
		return MoveScissors, nil
	default:
		return MoveNone, fmt.Errorf("unknown move %q", s)
	}
}

type RPSPhase uint8

const (
	RPSCommit RPSPhase = iota
	RPSReveal
	RPSComplete
)

func (p RPSPhase) String() string {
	return [...]string{"commit", "reveal", "complete"}[min(int(p), 2)]
}

type RPSGame struct {
	ID            uint64
	EscrowMatchID uint64
	Players       [2]common.Address
	TotalRounds   uint64
	CurrentRound  uint64
	Scores        [2]uint64
	Phase         RPSPhase
	PhaseDeadline time.Time
	Settled       bool
}

func (g *RPSGame) Seat(addr common.Address) (int, bool) { return seatOf(g.Players, addr) }

type RPSRound struct {
	Commits  [2]common.Hash
	Moves    [2]Move
	Revealed [2]bool
}

func (r *RPSRound) Committed(seat int) bool {
	return r.Commits[seat] != (common.Hash{})
}

// Complete reports whether both moves of the round are public.
func (r *RPSRound) Complete() bool {
	return r.Revealed[0] && r.Revealed[1] && r.Moves[0].Valid() && r.Moves[1].Valid()
}

type PokerPhase uint8

const (
	PokerCommit PokerPhase = iota
	PokerBetting1
	PokerBetting2
	PokerShowdown
	PokerComplete
)

func (p PokerPhase) String() string {
	return [...]string{"commit", "betting-1", "betting-2", "showdown", "complete"}[min(int(p), 4)]
}

func (p PokerPhase) Betting() bool {
	return p == PokerBetting1 || p == PokerBetting2
}

type PokerAction uint8

const (
	PokerNone PokerAction = iota
	PokerCheck
	PokerBet
	PokerRaise
	PokerCall
	PokerFold
)

func (a PokerAction) String() string {
	return [...]string{"none", "check", "bet", "raise", "call", "fold"}[min(int(a), 5)]
}

const (
	PokerRounds       = 3
	PokerBudget       = 150
	PokerMaxHandValue = 100
)

type PokerGame struct {
	ID            uint64
	EscrowMatchID uint64
	Players       [2]common.Address
	TotalRounds   uint64
	CurrentRound  uint64
	Scores        [2]uint64
	Budgets       [2]uint64
	Phase         PokerPhase
	CurrentTurn   common.Address
	CurrentBet    *big.Int
	Pot           *big.Int
	PhaseDeadline time.Time
	Settled       bool
}

func (g *PokerGame) Seat(addr common.Address) (int, bool) { return seatOf(g.Players, addr) }

type PokerRound struct {
	Commits    [2]common.Hash
	HandValues [2]uint8
	Committed  [2]bool
	Revealed   [2]bool
	ExtraBets  [2]*big.Int
}

type AuctionPhase uint8

const (
	AuctionCommit AuctionPhase = iota
	AuctionReveal
	AuctionComplete
)

func (p AuctionPhase) String() string {
	return [...]string{"commit", "reveal", "complete"}[min(int(p), 2)]
}

type AuctionGame struct {
	ID            uint64
	EscrowMatchID uint64
	Players       [2]common.Address
	Prize         *big.Int
	Commits       [2]common.Hash
	Bids          [2]*big.Int
	Committed     [2]bool
	Revealed      [2]bool
	Phase         AuctionPhase
	PhaseDeadline time.Time
	Settled       bool
}

func (g *AuctionGame) Seat(addr common.Address) (int, bool) { return seatOf(g.Players, addr) }

// CreateParams carries the variant specific arguments of create-game.
type CreateParams struct {
	Rounds uint64
}

type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// MatchOutcome is produced exactly once per orchestration.
type MatchOutcome struct {
	MatchID  uint64         `json:"matchId"`
	Variant  Variant        `json:"variant"`
	GameID   uint64         `json:"gameId"`
	Result   Result         `json:"result"`
	Winner   common.Address `json:"winnerAddress"`
	Wager    *big.Int       `json:"wagerAmount"`
	Player   common.Address `json:"player"`
	Opponent common.Address `json:"opponent"`
}
