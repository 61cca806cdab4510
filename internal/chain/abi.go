package chain

// escrowABI covers every escrow entry point the service touches. The
// getTrade tuple is declared with its components flattened; static
// tuples encode identically so unpacking stays reflection-free.
const escrowABI = `[
	{"inputs":[{"name":"id","type":"uint256"}],"name":"getTrade","outputs":[{"name":"seller","type":"address"},{"name":"buyer","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"fiatAmount","type":"uint256"},{"name":"paymentRef","type":"bytes32"},{"name":"createdAt","type":"uint64"},{"name":"paidAt","type":"uint64"},{"name":"fiat","type":"uint8"},{"name":"status","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"nextTradeId","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"seller","type":"address"}],"name":"getSellerContact","outputs":[{"name":"kakaoId","type":"string"},{"name":"telegramId","type":"string"},{"name":"registered","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"}],"name":"pendingFee","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"kakaoId","type":"string"},{"name":"telegramId","type":"string"}],"name":"registerContact","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"buyer","type":"address"},{"name":"fiat","type":"uint8"},{"name":"fiatAmount","type":"uint256"},{"name":"paymentRef","type":"bytes32"}],"name":"openTrade","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"id","type":"uint256"}],"name":"acceptTrade","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"id","type":"uint256"},{"name":"paymentRef","type":"bytes32"}],"name":"markPaid","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"id","type":"uint256"}],"name":"release","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"id","type":"uint256"}],"name":"cancelBySeller","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"id","type":"uint256"}],"name":"dispute","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"id","type":"uint256"},{"name":"winner","type":"address"}],"name":"resolveWinnerTakesAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"tradeId","type":"uint256"},{"name":"amountToBuyer","type":"uint256"}],"name":"resolveSplit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"withdrawFee","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"tradeId","type":"uint256"},{"indexed":true,"name":"seller","type":"address"},{"indexed":false,"name":"token","type":"address"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"fiat","type":"uint8"}],"name":"TradeOpened","type":"event"}
]`

// erc20ABI is the minimal surface needed for escrow funding checks and
// token metadata.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`
