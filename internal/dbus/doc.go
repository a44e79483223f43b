// Package dbus connects compstackd to D-Bus. It exports the stacking
// service on the session bus, follows the MCE display state on the system
// bus and sends desktop notifications about the daemon itself.
package dbus
