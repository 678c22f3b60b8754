package procwatch

// Version is the current version of the procwatch supervisor.
const Version = "0.1.0"
