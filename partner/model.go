package partner

// Item is one user's recharge feature row as the upstream returns it.
// Note the upstream field names valuableUser/hundredUser, not the
// is-prefixed names we persist.
type Item struct {
	UID           int64   `json:"uid"`
	TotalRecharge int64   `json:"totalRecharge"`
	Day1Coin      float64 `json:"day1Coin"`
	Day2Coin      float64 `json:"day2Coin"`
	Day7Coin      float64 `json:"day7Coin"`
	Day30Coin     float64 `json:"day30Coin"`
	ValuableUser  bool    `json:"valuableUser"`
	HundredUser   bool    `json:"hundredUser"`
	RegisterTime  *int64  `json:"registerTime"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// 登录响应，错误信息字段上游在 msg/message 之间摇摆
type loginResponse struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
	Token   string `json:"token"`
}

func (r loginResponse) errMsg() string {
	if r.Msg != "" {
		return r.Msg
	}
	if r.Message != "" {
		return r.Message
	}
	return "unknown error"
}

type featureData struct {
	Items []Item `json:"items"`
}

type featureResponse struct {
	Code    int          `json:"code"`
	Msg     string       `json:"msg"`
	Message string       `json:"message"`
	Data    *featureData `json:"data"`
}

func (r featureResponse) errMsg() string {
	if r.Msg != "" {
		return r.Msg
	}
	if r.Message != "" {
		return r.Message
	}
	return "unknown error"
}
