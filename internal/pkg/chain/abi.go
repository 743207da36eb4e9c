package chain

// ABIs of the arena contracts. Only the functions and events the agent consumes are
// listed.

const EscrowABI = `[
	{
		"type": "function", "name": "getMatch", "stateMutability": "view",
		"inputs": [{"name": "matchId", "type": "uint256"}],
		"outputs": [
			{"name": "player1", "type": "address"},
			{"name": "player2", "type": "address"},
			{"name": "wager", "type": "uint256"},
			{"name": "gameContract", "type": "address"},
			{"name": "status", "type": "uint8"},
			{"name": "createdAt", "type": "uint256"}
		]
	},
	{
		"type": "function", "name": "winners", "stateMutability": "view",
		"inputs": [{"name": "matchId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function", "name": "nextMatchId", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "acceptMatch", "stateMutability": "payable",
		"inputs": [{"name": "matchId", "type": "uint256"}],
		"outputs": []
	}
]`

const RPSGameABI = `[
	{
		"type": "function", "name": "getGame", "stateMutability": "view",
		"inputs": [{"name": "gameId", "type": "uint256"}],
		"outputs": [
			{"name": "escrowMatchId", "type": "uint256"},
			{"name": "player1", "type": "address"},
			{"name": "player2", "type": "address"},
			{"name": "totalRounds", "type": "uint256"},
			{"name": "currentRound", "type": "uint256"},
			{"name": "p1Score", "type": "uint256"},
			{"name": "p2Score", "type": "uint256"},
			{"name": "phase", "type": "uint8"},
			{"name": "phaseDeadline", "type": "uint256"},
			{"name": "settled", "type": "bool"}
		]
	},
	{
		"type": "function", "name": "getRound", "stateMutability": "view",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "round", "type": "uint256"}],
		"outputs": [
			{"name": "p1Commit", "type": "bytes32"},
			{"name": "p2Commit", "type": "bytes32"},
			{"name": "p1Move", "type": "uint8"},
			{"name": "p2Move", "type": "uint8"},
			{"name": "p1Revealed", "type": "bool"},
			{"name": "p2Revealed", "type": "bool"}
		]
	},
	{
		"type": "function", "name": "nextGameId", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "createGame", "stateMutability": "nonpayable",
		"inputs": [{"name": "escrowMatchId", "type": "uint256"}, {"name": "totalRounds", "type": "uint256"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "commit", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "commitHash", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "function", "name": "reveal", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "move", "type": "uint8"}, {"name": "salt", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "function", "name": "claimTimeout", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}],
		"outputs": []
	},
	{
		"type": "event", "name": "GameCreated", "anonymous": false,
		"inputs": [
			{"indexed": true, "name": "gameId", "type": "uint256"},
			{"indexed": true, "name": "escrowMatchId", "type": "uint256"},
			{"indexed": false, "name": "player1", "type": "address"},
			{"indexed": false, "name": "player2", "type": "address"},
			{"indexed": false, "name": "totalRounds", "type": "uint256"}
		]
	}
]`

const PokerGameABI = `[
	{
		"type": "function", "name": "getGame", "stateMutability": "view",
		"inputs": [{"name": "gameId", "type": "uint256"}],
		"outputs": [
			{"name": "escrowMatchId", "type": "uint256"},
			{"name": "player1", "type": "address"},
			{"name": "player2", "type": "address"},
			{"name": "totalRounds", "type": "uint256"},
			{"name": "currentRound", "type": "uint256"},
			{"name": "p1Score", "type": "uint256"},
			{"name": "p2Score", "type": "uint256"},
			{"name": "p1Budget", "type": "uint256"},
			{"name": "p2Budget", "type": "uint256"},
			{"name": "phase", "type": "uint8"},
			{"name": "currentTurn", "type": "address"},
			{"name": "currentBet", "type": "uint256"},
			{"name": "pot", "type": "uint256"},
			{"name": "phaseDeadline", "type": "uint256"},
			{"name": "settled", "type": "bool"}
		]
	},
	{
		"type": "function", "name": "getRound", "stateMutability": "view",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "round", "type": "uint256"}],
		"outputs": [
			{"name": "p1Commit", "type": "bytes32"},
			{"name": "p2Commit", "type": "bytes32"},
			{"name": "p1HandValue", "type": "uint8"},
			{"name": "p2HandValue", "type": "uint8"},
			{"name": "p1Committed", "type": "bool"},
			{"name": "p2Committed", "type": "bool"},
			{"name": "p1Revealed", "type": "bool"},
			{"name": "p2Revealed", "type": "bool"},
			{"name": "p1ExtraBets", "type": "uint256"},
			{"name": "p2ExtraBets", "type": "uint256"}
		]
	},
	{
		"type": "function", "name": "nextGameId", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "createGame", "stateMutability": "nonpayable",
		"inputs": [{"name": "escrowMatchId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "commitHand", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "commitHash", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "function", "name": "takeAction", "stateMutability": "payable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "action", "type": "uint8"}],
		"outputs": []
	},
	{
		"type": "function", "name": "revealHand", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "handValue", "type": "uint8"}, {"name": "salt", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "function", "name": "claimTimeout", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}],
		"outputs": []
	},
	{
		"type": "event", "name": "GameCreated", "anonymous": false,
		"inputs": [
			{"indexed": true, "name": "gameId", "type": "uint256"},
			{"indexed": true, "name": "escrowMatchId", "type": "uint256"},
			{"indexed": false, "name": "player1", "type": "address"},
			{"indexed": false, "name": "player2", "type": "address"}
		]
	}
]`

const AuctionGameABI = `[
	{
		"type": "function", "name": "getGame", "stateMutability": "view",
		"inputs": [{"name": "gameId", "type": "uint256"}],
		"outputs": [
			{"name": "escrowMatchId", "type": "uint256"},
			{"name": "player1", "type": "address"},
			{"name": "player2", "type": "address"},
			{"name": "prize", "type": "uint256"},
			{"name": "p1Commit", "type": "bytes32"},
			{"name": "p2Commit", "type": "bytes32"},
			{"name": "p1Bid", "type": "uint256"},
			{"name": "p2Bid", "type": "uint256"},
			{"name": "p1Committed", "type": "bool"},
			{"name": "p2Committed", "type": "bool"},
			{"name": "p1Revealed", "type": "bool"},
			{"name": "p2Revealed", "type": "bool"},
			{"name": "phase", "type": "uint8"},
			{"name": "phaseDeadline", "type": "uint256"},
			{"name": "settled", "type": "bool"}
		]
	},
	{
		"type": "function", "name": "nextGameId", "stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "createGame", "stateMutability": "nonpayable",
		"inputs": [{"name": "escrowMatchId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function", "name": "commitBid", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "commitHash", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "function", "name": "revealBid", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}, {"name": "bid", "type": "uint256"}, {"name": "salt", "type": "bytes32"}],
		"outputs": []
	},
	{
		"type": "function", "name": "claimTimeout", "stateMutability": "nonpayable",
		"inputs": [{"name": "gameId", "type": "uint256"}],
		"outputs": []
	},
	{
		"type": "event", "name": "GameCreated", "anonymous": false,
		"inputs": [
			{"indexed": true, "name": "gameId", "type": "uint256"},
			{"indexed": true, "name": "escrowMatchId", "type": "uint256"},
			{"indexed": false, "name": "player1", "type": "address"},
			{"indexed": false, "name": "player2", "type": "address"},
			{"indexed": false, "name": "prize", "type": "uint256"}
		]
	}
]`
