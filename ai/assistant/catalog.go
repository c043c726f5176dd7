// Package assistant implements the conversational tool-dispatch orchestrator:
// it resolves a free-text user message to zero or more read-only backend
// capabilities, invokes them against the internal gateway, and synthesizes a
// natural-language reply from the structured results.
package assistant

import (
	"encoding/json"
	"sort"

	"github.com/grassrootshq/clubassist/ai/llm"
)

// Parameter describes a single capability parameter.
type Parameter struct {
	Type     string
	Required bool
}

// Definition describes one invocable read-only capability: its name, a
// natural-language description for the model, its parameter schema, and the
// gateway route it maps to. Definitions are immutable after catalog creation.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]Parameter
	Route       string
}

// Catalog is the static registry of all capabilities. It is built once at
// process start and safely shared by concurrent requests without locking.
//
// Every route in the catalog is invoked with GET only; the catalog never
// carries a mutating operation, which is what structurally enforces the
// assistant's read-only policy.
type Catalog struct {
	ordered []*Definition
	byName  map[string]*Definition
	tools   []llm.ToolDescriptor
}

// NewCatalog builds the default capability catalog covering the club, schedule,
// fixture, carpool, shop, and stats services behind the gateway.
func NewCatalog() *Catalog {
	tenant := func(extra map[string]Parameter, required bool) map[string]Parameter {
		params := map[string]Parameter{
			"clubName": {Type: "string", Required: required},
			"ageGroup": {Type: "string", Required: required},
			"division": {Type: "string", Required: required},
		}
		for name, p := range extra {
			params[name] = p
		}
		return params
	}

	defs := []*Definition{
		{
			Name:        "getPlayers",
			Description: "Retrieve players for a specific club, age group, and division.",
			Parameters:  tenant(nil, true),
			Route:       "/club/players",
		},
		{
			Name:        "listTeamMembers",
			Description: "Fetches all players using query params (clubName, ageGroup, division).",
			Parameters:  tenant(nil, true),
			Route:       "/membership/team",
		},
		{
			Name:        "searchClubs",
			Description: "Search for clubs with optional filters.",
			Parameters: map[string]Parameter{
				"clubName": {Type: "string"},
				"county":   {Type: "string"},
				"ageGroup": {Type: "string"},
				"division": {Type: "string"},
			},
			Route: "/club/search",
		},
		{
			Name:        "getFixturesByMonth",
			Description: "Get fixtures for a given month.",
			Parameters:  tenant(map[string]Parameter{"month": {Type: "string", Required: true}}, true),
			Route:       "/schedule/fixture",
		},
		{
			Name:        "getAllFixtures",
			Description: "Get all fixtures.",
			Parameters:  tenant(nil, true),
			Route:       "/schedule/fixtures",
		},
		{
			Name:        "getTrainingsByMonth",
			Description: "Get training sessions for a month.",
			Parameters:  tenant(map[string]Parameter{"month": {Type: "string", Required: true}}, true),
			Route:       "/schedule/training",
		},
		{
			Name:        "getLineups",
			Description: "Retrieve match lineups.",
			Parameters:  tenant(map[string]Parameter{"matchId": {Type: "string", Required: true}}, true),
			Route:       "/fixture/lineups",
		},
		{
			Name:        "getEvents",
			Description: "Retrieve events for a match.",
			Parameters:  tenant(map[string]Parameter{"matchId": {Type: "string", Required: true}}, true),
			Route:       "/fixture/events",
		},
		{
			Name:        "getResult",
			Description: "Retrieve the result of a match.",
			Parameters:  tenant(map[string]Parameter{"matchId": {Type: "string", Required: true}}, true),
			Route:       "/fixture/results",
		},
		{
			Name:        "getPlayerRating",
			Description: "Fetches player ratings for a specific match.",
			Parameters:  tenant(map[string]Parameter{"matchId": {Type: "string", Required: true}}, true),
			Route:       "/fixture/player",
		},
		{
			Name:        "getRides",
			Description: "Retrieve available carpool rides for a team.",
			Parameters:  tenant(nil, true),
			Route:       "/carpool/rides",
		},
		{
			Name:        "listProducts",
			Description: "Retrieve available products for a specific team inside a club.",
			Parameters:  tenant(nil, true),
			Route:       "/products/list",
		},
		{
			Name:        "listTransactions",
			Description: "Retrieve a user's transaction history, including completed and pending transactions with itemized details of purchased products.",
			Parameters:  tenant(map[string]Parameter{"email": {Type: "string", Required: true}}, true),
			Route:       "/transactions/list",
		},
		{
			Name:        "getPlayerStats",
			Description: "Fetches player statistics based on their email.",
			Parameters:  tenant(map[string]Parameter{"playerEmail": {Type: "string", Required: true}}, true),
			Route:       "/stats/get",
		},
		{
			Name:        "searchPlayersByName",
			Description: "Searches for players based on a partial or full match of their name.",
			Parameters:  tenant(map[string]Parameter{"playerName": {Type: "string", Required: true}}, true),
			Route:       "/stats/search",
		},
		{
			Name:        "listAllPlayerStats",
			Description: "Retrieves all player statistics and identifies top performers for various categories.",
			Parameters:  tenant(nil, true),
			Route:       "/stats/list",
		},
	}

	c := &Catalog{
		ordered: defs,
		byName:  make(map[string]*Definition, len(defs)),
	}
	for _, def := range defs {
		c.byName[def.Name] = def
	}
	c.tools = buildToolDescriptors(defs)
	return c
}

// Lookup returns the definition for the given capability name.
func (c *Catalog) Lookup(name string) (*Definition, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// All returns the capability definitions in registration order.
func (c *Catalog) All() []*Definition {
	return c.ordered
}

// Tools returns the machine-readable function signatures submitted to the
// inference service alongside the conversation.
func (c *Catalog) Tools() []llm.ToolDescriptor {
	return c.tools
}

// jsonSchema is the subset of JSON Schema the inference service expects for
// function parameters.
type jsonSchema struct {
	Type       string                        `json:"type"`
	Properties map[string]jsonSchemaProperty `json:"properties"`
	Required   []string                      `json:"required,omitempty"`
}

type jsonSchemaProperty struct {
	Type string `json:"type"`
}

func buildToolDescriptors(defs []*Definition) []llm.ToolDescriptor {
	tools := make([]llm.ToolDescriptor, 0, len(defs))
	for _, def := range defs {
		schema := jsonSchema{
			Type:       "object",
			Properties: make(map[string]jsonSchemaProperty, len(def.Parameters)),
		}
		for name, p := range def.Parameters {
			schema.Properties[name] = jsonSchemaProperty{Type: p.Type}
			if p.Required {
				schema.Required = append(schema.Required, name)
			}
		}
		sort.Strings(schema.Required)

		// Map keys marshal in sorted order, so the emitted schema is stable
		// across process restarts.
		raw, err := json.Marshal(schema)
		if err != nil {
			// The schema is built from static string data; marshaling cannot fail.
			panic(err)
		}

		tools = append(tools, llm.ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  string(raw),
		})
	}
	return tools
}
