// Package release handles artifact publication: the latest.json manifest
// with content hashes, date-based tag naming and the GitHub Releases client
// used to download the previous artifact and upload the new one.
package release
