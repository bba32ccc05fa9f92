package lib

func UserTotalTokensKey(user string) string {
	return user + ":total_tokens"
}

func UserTotalCostKey(user string) string {
	return user + ":total_cost"
}
