// Package pathmap maps raw rip directories to their transcoded destinations.
//
// Two source layouts are understood. The flat layout keeps the series and
// movie subtrees directly below the source base; the split layout inserts a
// dvd/ or bluray/ level first. Series keep their relative structure below the
// series destination, movies always land flat in the movie destination. The
// layout is resolved once when the Mapper is built so a mismatch surfaces at
// startup rather than per job.
package pathmap
