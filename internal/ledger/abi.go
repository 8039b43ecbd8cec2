package ledger

// contractABI is the subset of the ExtractV2 contract the oracle calls.
const contractABI = `[
  {"type":"function","name":"BUY_IN","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"GAME_DURATION","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"startGame","inputs":[{"name":"_commitment","type":"bytes32"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"declareWinner","inputs":[{"name":"winner","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"endGame","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"function","name":"getGameInfo","inputs":[],"outputs":[
    {"name":"_gameId","type":"uint256"},
    {"name":"_commitment","type":"bytes32"},
    {"name":"_pot","type":"uint256"},
    {"name":"_endTime","type":"uint256"},
    {"name":"_active","type":"bool"},
    {"name":"_timeRemaining","type":"uint256"}
  ],"stateMutability":"view"},
  {"type":"function","name":"hasBoughtIn","inputs":[{"name":"player","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
  {"type":"function","name":"getPlayerBuyIn","inputs":[{"name":"player","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"error","name":"OnlyAgent","inputs":[]},
  {"type":"error","name":"GameNotActive","inputs":[]},
  {"type":"error","name":"GameStillActive","inputs":[]},
  {"type":"error","name":"IncorrectBuyIn","inputs":[]},
  {"type":"error","name":"TransferFailed","inputs":[]},
  {"type":"error","name":"ZeroAddress","inputs":[]}
]`
