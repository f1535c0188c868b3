package parsers

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"esgdocs/internal"
)

const cyrillicRTF = `{\rtf1\ansi\ansicpg1251\deff0{\fonttbl{\f0\fswiss\fcharset204 Arial;}}{\colortbl;\red0\green0\blue0;}
{\*\generator Riched20 10.0;}\viewkind4\uc1\pard\f0\fs24 Электроэнергия: 500 кВт\*ч\par
}`

func TestRTFCyrillicUsesStripper(t *testing.T) {
	res := NewRTF().Parse(context.Background(), []byte(cyrillicRTF), internal.DefaultParseOptions())
	require.True(t, res.Success, res.Error)

	data := res.Data
	assert.Equal(t, MethodRTFStripper, data.Metadata.Extra["method"])
	assert.Contains(t, data.Text, "Электроэнергия: 500 кВт")
	require.Len(t, data.ExtractedData.ElectricityData, 1)
	assert.InDelta(t, 500, data.ExtractedData.ElectricityData[0].Value, 1e-9)
	assert.NotContains(t, data.Text, "Arial")
	assert.NotContains(t, data.Text, "Riched20")
}

func hexEscaped(t *testing.T, s string) string {
	t.Helper()
	raw, err := charmap.Windows1251.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	var b strings.Builder
	for _, c := range raw {
		if c < 0x80 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, `\'%02x`, c)
	}
	return b.String()
}

func TestStripRTFHexEscapes(t *testing.T) {
	doc := `{\rtf1\ansi\ansicpg1251 ` + hexEscaped(t, "Газ: 350 м3") + `\par ` + hexEscaped(t, "Тепло") + `\tab 12,5\par}`
	text, err := StripRTF([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Газ: 350 м3\nТепло\t12,5", text)
}

func TestStripRTFUnicodeEscapes(t *testing.T) {
	text, err := StripRTF([]byte(`{\rtf1\uc1\u1069?\u1083?\u1100?}`))
	require.NoError(t, err)
	assert.Equal(t, "Эль", text)
}

func TestStripRTFControlSymbols(t *testing.T) {
	text, err := StripRTF([]byte(`{\rtf1 a\~b\_c \{x\}\\y\cell z}`))
	require.NoError(t, err)
	assert.Equal(t, `a b-c {x}\y | z`, text)
}

func TestStripRTFRejectsNonRTF(t *testing.T) {
	_, err := StripRTF([]byte("plain text"))
	assert.ErrorIs(t, err, ErrNotRTF)

	_, err = StripRTF([]byte(`{\rtf1{\fonttbl{\f0 Arial;}}}`))
	assert.Error(t, err)
}
