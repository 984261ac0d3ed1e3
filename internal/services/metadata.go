package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"ticket-backend/internal/models"
)

type metadataAttribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

type ticketMetadata struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Image       string              `json:"image,omitempty"`
	Attributes  []metadataAttribute `json:"attributes,omitempty"`
	EventID     string              `json:"eventId"`
}

func dataURI(v interface{}) string {
	raw, _ := json.Marshal(v)
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw)
}

// MintMetadataURI builds the inline metadata passed to mintTicket
func MintMetadataURI(event *models.Event) string {
	return dataURI(ticketMetadata{
		Name:        event.Title + " - Ticket",
		Description: fmt.Sprintf("Event ticket for %s. %s", event.Title, event.Description),
		Image:       "https://via.placeholder.com/400x600/6366f1/ffffff?text=" + url.QueryEscape(event.Title),
		Attributes: []metadataAttribute{
			{TraitType: "Event", Value: event.Title},
			{TraitType: "Date", Value: event.Date.Format("2006-01-02")},
			{TraitType: "Location", Value: event.Location},
			{TraitType: "Event ID", Value: event.ID},
		},
		EventID: strconv.FormatUint(event.ID, 10),
	})
}

// LedgerMetadataURI builds the metadata recorded on the off-chain ticket row
func LedgerMetadataURI(tokenID, eventID uint64) string {
	return dataURI(ticketMetadata{
		Name:        fmt.Sprintf("Event Ticket #%d", tokenID),
		Description: "NFT Event Ticket",
		EventID:     strconv.FormatUint(eventID, 10),
	})
}
