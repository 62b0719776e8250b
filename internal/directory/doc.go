// Package directory builds immutable snapshots of mail-enabled users and
// groups, publishes them for lock-free lookup and keeps them refreshed.
//
// A Builder runs one user search and one group search and cross-references
// distribution list members in memory. The Scheduler publishes each
// successful build into a LookupTable and keeps the previous snapshot when
// a build fails. A Resolver answers recipient lookups from whatever
// snapshot is current and never touches the directory.
package directory
