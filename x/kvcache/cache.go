// Package kvcache - Schnittstelle des K/V-Caches einer Attention-Schicht
//
// Der Cache wird von der Attention-API entgegengenommen, aber noch nicht
// ausgewertet. Vorgesehen ist eine Variante fuer quantisierte Caches, die
// die Kernel-Parameter anhand von Gruppengroesse und Bitbreite anpasst.
package kvcache

// Cache speichert K- und V-Tensoren entlang der Sequenz
type Cache interface {
	// Offset ist die Anzahl der bereits gespeicherten Positionen
	Offset() int
}
