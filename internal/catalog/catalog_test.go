package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default("https://example.com/guide")

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []ServiceType{ServiceNFA, ServiceFA, ServiceXboxGP},
		[]ServiceType{list[0].Type, list[1].Type, list[2].Type})

	nfa, err := r.Get(ServiceNFA)
	require.NoError(t, err)
	assert.Empty(t, nfa.GuideURL)

	fa, ok := r.Lookup("fa")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/guide", fa.GuideURL)
	assert.Equal(t, "💎 Full Access (FA)", fa.Label())

	_, err = r.Get("steam")
	assert.Error(t, err)
	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry(Service{Type: "a"}, Service{Type: "a"})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(Service{Name: "nameless"})
	assert.Error(t, err)
}

func TestChoices(t *testing.T) {
	r, err := NewRegistry(Service{Type: "a", Name: "Alpha"}, Service{Type: "b", Name: "Beta"})
	require.NoError(t, err)

	choices := r.Choices()
	require.Len(t, choices, 2)
	assert.Equal(t, "Alpha", choices[0].Name)
	assert.Equal(t, "a", choices[0].Value)
	assert.Equal(t, "b", choices[1].Value)
	assert.Equal(t, "Beta", Service{Name: "Beta"}.Label())
}
