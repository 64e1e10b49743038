package quran

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func editionBody(texts ...string) string {
	var ayahs []string
	for i, t := range texts {
		ayahs = append(ayahs, fmt.Sprintf(`{"number":%d,"numberInSurah":%d,"text":%q}`, 6000+i, i+1, t))
	}
	return fmt.Sprintf(`{"code":200,"status":"OK","data":{"number":112,"name":"سورة الإخلاص","englishName":"Al-Ikhlaas","ayahs":[%s]}}`, strings.Join(ayahs, ","))
}

func TestSurahJoinsEditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/surah/112/quran-uthmani":
			w.Write([]byte(editionBody("قُلْ هُوَ ٱللَّهُ أَحَدٌ", "ٱللَّهُ ٱلصَّمَدُ")))
		case "/v1/surah/112/en.asad":
			w.Write([]byte(editionBody("SAY: He is the One God", "God the Eternal, the Uncaused Cause")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL).Surah(context.Background(), 112)
	require.NoError(t, err)
	assert.Equal(t, "Al-Ikhlaas", s.EnglishName)
	require.Len(t, s.Verses, 2)
	assert.Equal(t, 2, s.Verses[1].Number)
	assert.Equal(t, "ٱللَّهُ ٱلصَّمَدُ", s.Verses[1].Arabic)
	assert.Equal(t, "God the Eternal, the Uncaused Cause", s.Verses[1].Translation)
}

func TestSurahFailsWhenOneEditionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, TranslationEdition) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":404,"status":"Not Found","data":"Edition not found"}`))
			return
		}
		w.Write([]byte(editionBody("a")))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Surah(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestSurahMismatchedEditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ArabicEdition) {
			w.Write([]byte(editionBody("a", "b")))
			return
		}
		w.Write([]byte(editionBody("a")))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Surah(context.Background(), 1)
	assert.Error(t, err)
}

func TestSurahRange(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Surah(context.Background(), 0)
	assert.Error(t, err)
	_, err = c.Surah(context.Background(), 115)
	assert.Error(t, err)
}
