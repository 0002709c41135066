package ocsp_source

import (
	"encoding/pem"
	"net/http"

	cfocsp "github.com/cloudflare/cfssl/ocsp"
	"github.com/go-chi/chi/v5"
)

var corruptBody = []byte("this is not DER")

// Handler serves the responder on /ocsp and the CRL on /crl (DER) and
// /crl.pem.
func (source *CrlSource) Handler() http.Handler {
	responder := cfocsp.NewResponder(source, nil)
	ocspHandler := source.countOCSP(responder)

	router := chi.NewRouter()
	router.Handle("/ocsp", ocspHandler)
	router.Handle("/ocsp/*", http.StripPrefix("/ocsp/", ocspHandler))
	router.Get("/crl", source.countCRL(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pkix-crl")
		w.Write(source.currentCrl().Raw)
	}))
	router.Get("/crl.pem", source.countCRL(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pkix-crl")
		pem.Encode(w, &pem.Block{Type: "X509 CRL", Bytes: source.currentCrl().Raw})
	}))
	return router
}

func (source *CrlSource) isCorrupt() bool {
	source.mu.RLock()
	defer source.mu.RUnlock()
	return source.corrupt
}

func (source *CrlSource) countOCSP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source.ocspRequests.Add(1)
		if source.isCorrupt() {
			w.Header().Set("Content-Type", "application/ocsp-response")
			w.Write(corruptBody)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (source *CrlSource) countCRL(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source.crlRequests.Add(1)
		if source.isCorrupt() {
			w.Write(corruptBody)
			return
		}
		next(w, r)
	}
}
