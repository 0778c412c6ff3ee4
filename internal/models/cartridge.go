// Package models defines the records shared by the stores, services and API.
package models

// Vertical is the industry a cartridge serves.
type Vertical string

const (
	VerticalHotel   Vertical = "hotel"
	VerticalBank    Vertical = "bank"
	VerticalRetail  Vertical = "retail"
	VerticalGeneral Vertical = "general"
)

// Cartridge is a vertical-specific persona: instructions, voice and the tools
// it may call.
type Cartridge struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	Vertical          Vertical `json:"vertical" yaml:"vertical"`
	Description       string   `json:"description,omitempty" yaml:"description"`
	SystemInstruction string   `json:"system_instruction" yaml:"system_instruction"`
	Voice             string   `json:"voice,omitempty" yaml:"voice"`
	Tools             []string `json:"tools" yaml:"tools"`
	Active            bool     `json:"active" yaml:"active"`
}
