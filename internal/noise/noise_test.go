package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestGenerateSeeded(t *testing.T) {
	opts := DefaultOptions(64, 48)
	opts.Scale = 8
	opts.Strength = 0.1
	opts = opts.WithSeed(7)

	a, err := Generate(opts, nil)
	require.NoError(t, err)
	b, err := Generate(opts, nil)
	require.NoError(t, err)

	assert.Equal(t, 64, a.Bounds().Dx())
	assert.Equal(t, 48, a.Bounds().Dy())
	assert.Equal(t, a.Pix, b.Pix)

	for i := 0; i < len(a.Pix); i += 4 {
		require.Equal(t, uint8(255), a.Pix[i+3])
		require.Equal(t, a.Pix[i], a.Pix[i+1])
		require.Equal(t, a.Pix[i], a.Pix[i+2])
	}
}

func TestGenerateAmbientSource(t *testing.T) {
	opts := DefaultOptions(16, 16)
	opts.Distribution = Uniform

	a, err := Generate(opts, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	b, err := Generate(opts, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)

	c, err := Generate(opts, rand.New(rand.NewSource(4)))
	require.NoError(t, err)
	assert.NotEqual(t, a.Pix, c.Pix)
}

func TestGenerateZeroStrengthIsFlat(t *testing.T) {
	opts := DefaultOptions(20, 10)
	opts.Scale = 4
	opts.Strength = 0
	img, err := Generate(opts.WithSeed(1), nil)
	require.NoError(t, err)
	for i := 0; i < len(img.Pix); i += 4 {
		require.InDelta(t, 127, int(img.Pix[i]), 1)
	}
}

func TestGenerateInvalid(t *testing.T) {
	_, err := Generate(Options{Width: 0, Height: 10, Scale: 1}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Generate(Options{Width: 10, Height: 10, Scale: 0}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Generate(DefaultOptions(4, 4), nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestParseDistribution(t *testing.T) {
	d, err := ParseDistribution("Uniform")
	require.NoError(t, err)
	assert.Equal(t, Uniform, d)

	d, err = ParseDistribution("normal")
	require.NoError(t, err)
	assert.Equal(t, Gaussian, d)

	_, err = ParseDistribution("pink")
	assert.Error(t, err)
}

func TestFractalRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := Fractal(float64(i)*0.37, float64(i)*-1.3, 1e6+float64(i), 99, 3)
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, Value3D(1.5, 2.5, 3.5, 5), Value3D(1.5, 2.5, 3.5, 5))
	assert.InDelta(t, hash3D(2, 3, 4, 5), Value3D(2, 3, 4, 5), 1e-12)
}
