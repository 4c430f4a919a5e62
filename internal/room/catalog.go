package room

// Room describes one entry of the static room catalog.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Preview     string `json:"preview"`
	Image       string `json:"image"`
	Status      string `json:"status"`
	OnlineCount int    `json:"onlineCount"`
}

var catalog = []Room{
	{ID: "general", Name: "Serverless is Awesome", Preview: "General serverless talk", Image: "/static/images/serverless.svg"},
	{ID: "fargate", Name: "AWS Fargate", Preview: "Serverless containers", Image: "/static/images/fargate.svg"},
	{ID: "lambda", Name: "AWS Lambda", Preview: "Serverless functions", Image: "/static/images/lambda.svg"},
	{ID: "ecs", Name: "Amazon Elastic Container Service", Preview: "Orchestrate serverless containers", Image: "/static/images/ecs.svg"},
}

// Catalog returns the rooms clients can choose from. Membership is not
// tracked; status and online count are placeholders the client fills in.
func Catalog() []Room {
	out := make([]Room, len(catalog))
	for i, r := range catalog {
		r.Status = "none"
		out[i] = r
	}
	return out
}
