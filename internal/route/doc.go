// Package route implements the destination cache consulted by next-hop
// selection. Entries map a destination address to the next hop chosen
// for it and the path MTU toward it. The neighbor discovery stack
// invalidates entries when the neighbor or router they point at goes away.
package route
