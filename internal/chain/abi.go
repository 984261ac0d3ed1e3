// Package chain is the read/write gateway to the EventTicketNFT contract
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// eventTicketNFTABI is the subset of the EventTicketNFT contract this service calls
const eventTicketNFTABI = `[
	{"type":"function","name":"ticketPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"MAX_TICKETS_PER_EVENT","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"ticketsPerEvent","stateMutability":"view","inputs":[{"name":"eventId","type":"uint256"},{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tickets","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"eventId","type":"uint256"},{"name":"isUsed","type":"bool"},{"name":"mintedAt","type":"uint256"},{"name":"eventTitle","type":"string"}]},
	{"type":"function","name":"getTicketsByOwnerForEvent","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"eventId","type":"uint256"}],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"getTicketsForEvent","stateMutability":"view","inputs":[{"name":"eventId","type":"uint256"}],"outputs":[{"name":"","type":"uint256[]"}]},
	{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"mintTicket","stateMutability":"payable","inputs":[{"name":"eventId","type":"uint256"},{"name":"recipient","type":"address"},{"name":"eventTitle","type":"string"},{"name":"metadataURI","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"safeTransferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"TicketMinted","anonymous":false,"inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"eventId","type":"uint256","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"metadataURI","type":"string","indexed":false}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

// TicketABI is the parsed contract ABI
var TicketABI = mustParseABI(eventTicketNFTABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("invalid EventTicketNFT ABI: " + err.Error())
	}
	return parsed
}
