// Package domain contains the core entities of the gnosis retrieval engine:
// documents, content-addressed mirrors, chunks, links, vectors and the
// error taxonomy shared by every component. It has no adapter dependencies.
package domain
