package presentation

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

const SlipsPath = "/slips"

// MountSlips serves slips written by the local store under /slips/. Directory
// listings are not exposed.
func MountSlips(r chi.Router, dir string) {
	fs := http.StripPrefix(SlipsPath+"/", http.FileServer(noListingFS{http.Dir(dir)}))
	r.Get(SlipsPath+"/*", fs.ServeHTTP)
}

type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
