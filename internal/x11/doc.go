// Package x11 connects the stacking core to an X server. It reads
// structural notifications from the root window's substructure, keeps a
// property cache of the attributes the stacking policy needs, issues
// restacking requests and publishes the results back to the server.
package x11
