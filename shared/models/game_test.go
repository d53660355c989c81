package models_test

import (
	"testing"

	"game-contract/shared/models"

	"github.com/stretchr/testify/assert"
)

const fullState = `Player_Location: crystal cavern
Player_Health: 85
Player_Score: 40
Player_Inventory: [torch, rope]
Game_Status: active
Messages: ["The crystals hum softly."]
Turn_Count: 5`

func TestExtractStateField(t *testing.T) {
	assert.Equal(t, "crystal cavern", models.ExtractStateField(fullState, models.FieldLocation))
	assert.Equal(t, "85", models.ExtractStateField(fullState, models.FieldHealth))
	assert.Equal(t, "[torch, rope]", models.ExtractStateField(fullState, models.FieldInventory))
	assert.Equal(t, "5", models.ExtractStateField(fullState, models.FieldTurnCount))
	assert.Empty(t, models.ExtractStateField(fullState, "Nonexistent_Field:"))
	// Значение в последней строке без перевода строки.
	assert.Equal(t, "7", models.ExtractStateField("Turn_Count: 7", models.FieldTurnCount))
}

func TestHasAllStateFields(t *testing.T) {
	assert.True(t, models.HasAllStateFields(fullState))
	assert.False(t, models.HasAllStateFields("Player_Location: cave\nPlayer_Health: 10\n"))
	assert.False(t, models.HasAllStateFields(""))
}

func TestIsWonState(t *testing.T) {
	assert.False(t, models.IsWonState(fullState))
	won := "Player_Location: vault\nGame_Status: won\n"
	assert.True(t, models.IsWonState(won))
	lost := "Game_Status: lost\n"
	assert.False(t, models.IsWonState(lost))
}
