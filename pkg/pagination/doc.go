// Package pagination handles GitHub's Link-header pagination.
//
// GitHub paginates collections with Link headers (rel="first|prev|next|last")
// and ships items either as a bare JSON array or wrapped in a container
// object ({"total_count": n, "items": [...]}). ParsePage and ReadPage decode
// both shapes into a Page[T].
//
// Example usage:
//
//	page, err := pagination.ReadPage[Issue](resp)
//	stream := pagination.NewStream(page, fetch)
//	for stream.Next(ctx) {
//		handle(stream.Item())
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Stream[T] walks a collection lazily and strictly in order: no page is
// requested before the previous one is fully consumed, and dropping the
// stream fetches nothing further. FetchAll assembles whole collections
// eagerly when laziness is not needed.
package pagination
