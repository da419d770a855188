package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodePath(t *testing.T) {
	t.Run("Should keep safe segments untouched", func(t *testing.T) {
		assert.Equal(t, "docs/report-v2.txt", EncodePath("docs/report-v2.txt"))
	})
	t.Run("Should encode unsafe segments with visible extension", func(t *testing.T) {
		encoded := EncodePath("docs/quarterly report.pdf")
		assert.Equal(t, "docs", encoded[:4])
		assert.Contains(t, encoded, "u_")
		assert.Contains(t, encoded, ".pdf")
		assert.NotContains(t, encoded, " ")
	})
	t.Run("Should encode unicode segments", func(t *testing.T) {
		encoded := EncodePath("docs/résumé.txt")
		assert.Contains(t, encoded, "u_")
		assert.Contains(t, encoded, ".txt")
	})
	t.Run("Should encode segments that start with the reserved marker", func(t *testing.T) {
		encoded := EncodePath("u_weird")
		assert.NotEqual(t, "u_weird", encoded)
		assert.Equal(t, "u_weird", DecodePath(encoded))
	})
	t.Run("Should be idempotent", func(t *testing.T) {
		once := EncodePath("docs/quarterly report.pdf")
		assert.Equal(t, once, EncodePath(once))
	})
	t.Run("Should handle empty path", func(t *testing.T) {
		assert.Equal(t, "", EncodePath(""))
		assert.Equal(t, "", DecodePath(""))
	})
}

func TestDecodePath(t *testing.T) {
	t.Run("Should round-trip arbitrary logical paths", func(t *testing.T) {
		paths := []string{
			"simple.txt",
			"a/b/c.pdf",
			"with space/and#hash.bin",
			"émoji 🎉/file.tar.gz",
			"no-extension",
			".hidden",
		}
		for _, p := range paths {
			assert.Equal(t, p, DecodePath(EncodePath(p)), p)
		}
	})
	t.Run("Should pass through non-encoded segments", func(t *testing.T) {
		assert.Equal(t, "plain/path.txt", DecodePath("plain/path.txt"))
	})
	t.Run("Should leave invalid encodings alone", func(t *testing.T) {
		assert.Equal(t, "u_!!notb64!!", DecodePath("u_!!notb64!!"))
	})
	t.Run("Should decode names that already look encoded instead of round-tripping them", func(t *testing.T) {
		// "u_aGk" carries a valid base64url body ("hi"), so encoding keeps
		// it untouched and decoding yields the payload, not the original
		// name. Idempotence wins over invertibility for such names.
		assert.Equal(t, "u_aGk", EncodePath("u_aGk"))
		assert.Equal(t, "hi", DecodePath(EncodePath("u_aGk")))
	})
}
