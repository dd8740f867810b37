package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTag_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tag     Tag
		wantErr bool
	}{
		{"valid directory tag", Tag{Name: "Later", Value: "later", Usage: TagUsageDirectory, Color: "#f43f5e"}, false},
		{"valid without color", Tag{Name: "Music", Value: "music", Usage: TagUsagePrefix}, false},
		{"missing name", Tag{Value: "x", Usage: TagUsageSuffix}, true},
		{"unknown usage", Tag{Name: "x", Value: "x", Usage: "folder"}, true},
		{"bad color", Tag{Name: "x", Value: "x", Usage: TagUsageSuffix, Color: "red"}, true},
		{"negative priority", Tag{Name: "x", Value: "x", Usage: TagUsageSuffix, Priority: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tag.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStrategy_Validate(t *testing.T) {
	for _, s := range DefaultStrategies() {
		assert.NoError(t, s.Validate(), s.Name)
	}

	bad := &OptionStrategy{Name: "audio", ExtractAudio: true}
	assert.Error(t, bad.Validate())

	bad = &OptionStrategy{Name: "weird merge", MergeOutputFormat: "zip"}
	assert.Error(t, bad.Validate())
}

func TestDefaultStrategies_AscendingPriority(t *testing.T) {
	strategies := DefaultStrategies()
	for i := 1; i < len(strategies); i++ {
		assert.Less(t, strategies[i-1].Priority, strategies[i].Priority)
	}
}

func TestParseTagUsage(t *testing.T) {
	u, err := ParseTagUsage("Suffix")
	assert.NoError(t, err)
	assert.Equal(t, TagUsageSuffix, u)

	_, err = ParseTagUsage("nope")
	assert.Error(t, err)
}
