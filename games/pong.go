package games

// Two players share a session and each control a paddle on opposite sides of the field
// Player 1 defends the left edge, player 2 the right
// The ball launches after a short countdown once both players have joined
// Paddle contact reflects the ball, with the bounce angle set by where on the paddle it hits
// When the ball fully exits an edge, the defender's opponent scores and the ball is re-served
// First player to reach the winning score takes the match

// Display formats:
// - Canvas rendering of field, paddles, ball, and score
// - Status line for waiting/paused/finished states

// Implementation details:
// - Identify players by a stable id kept in browser localStorage
// - One goroutine per session owns all game state, fed by a command channel
// - Fixed-rate ticker advances physics; elapsed wall time scales movement
// - A dropped connection pauses the game, and the seat is held for a grace period
// - Finished sessions hand their players off to a fresh session

// How to play
// - Open the page, optionally share the QR code with an opponent
// - ArrowUp and ArrowDown move the paddle
// - Refreshing the page within the grace period reclaims the same seat
