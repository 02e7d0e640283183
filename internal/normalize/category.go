package normalize

import (
	"sort"
	"strings"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"
)

// DefaultCategoryID 没有任何主分类命中时使用的分类 ID。
const DefaultCategoryID = "default-category-id"

// DefaultCategory 默认分类名。
const DefaultCategory = "default"

type subCategory struct {
	name     string
	id       string
	keywords []string
}

type mainCategory struct {
	name     string
	id       string
	keywords []string
	subs     []subCategory
}

// categoryTable 的顺序决定同分时的优先级。
var categoryTable = []mainCategory{
	{
		name:     "clothing",
		id:       "clothing-category-id",
		keywords: []string{"vêtement", "mode", "habit", "habillement", "tenue", "garde-robe", "服装", "衣服", "时尚", "服饰"},
		subs: []subCategory{
			{"mens_clothing", "mens-clothing-id", []string{"homme", "hommes", "masculin", "garçon", "男装", "男士", "男性", "男士服装"}},
			{"womens_clothing", "womens-clothing-id", []string{"femme", "femmes", "féminin", "fille", "女装", "女士", "女性", "女士服装"}},
			{"tops", "tops-id", []string{"t-shirt", "chemise", "blouse", "haut", "pull", "sweat", "polo", "gilet", "maillot", "T恤", "衫衫", "上衣", "毛衣", "卫衣", "背心", "气质衫"}},
			{"bottoms", "bottoms-id", []string{"pantalon", "jean", "short", "bermuda", "jupe", "legging", "jogging", "裤子", "牛仔裤", "短裤", "裙子", "紧身裤", "运动裤"}},
			{"outerwear", "outerwear-id", []string{"veste", "manteau", "blouson", "parka", "doudoune", "imperméable", "trench", "外套", "夹克", "风衣", "大衣", "羽绒服", "雨衣"}},
			{"shoes", "shoes-id", []string{"chaussure", "basket", "tennis", "botte", "sandale", "escarpin", "mocassin", "鞋", "运动鞋", "高跟鞋", "靴子", "凉鞋", "平底鞋"}},
			{"accessories", "accessories-id", []string{"accessoire", "chapeau", "casquette", "bonnet", "écharpe", "gant", "ceinture", "cravate", "noeud papillon", "配件", "帽子", "棍球帽", "围巾", "手套", "皮带", "领带", "领结"}},
		},
	},
	{
		name:     "electronics",
		id:       "electronics-category-id",
		keywords: []string{"électronique", "tech", "technologie", "gadget", "appareil", "电子产品", "数码", "科技", "设备"},
		subs: []subCategory{
			{"phones", "phones-id", []string{"téléphone", "smartphone", "mobile", "portable", "coque", "protection", "chargeur", "手机", "智能手机", "手机壳", "手机套", "充电器"}},
			{"computers", "computers-id", []string{"ordinateur", "pc", "laptop", "portable", "tablette", "clavier", "souris", "tapis de souris", "电脑", "笔记本电脑", "平板电脑", "键盘", "鼠标", "鼠标垫"}},
			{"audio", "audio-id", []string{"audio", "écouteur", "casque", "enceinte", "haut-parleur", "son", "bluetooth", "音频", "耳机", "耳塘", "音箱", "音响", "蓝牙"}},
			{"cameras", "cameras-id", []string{"appareil photo", "caméra", "photo", "vidéo", "objectif", "trépied", "相机", "摄像头", "摄影", "镜头", "三脚架"}},
			{"wearables", "wearables-id", []string{"montre", "montre intelligente", "smartwatch", "bracelet connecté", "tracker", "手表", "智能手表", "智能手环", "运动手环"}},
		},
	},
	{
		name:     "home",
		id:       "home-category-id",
		keywords: []string{"maison", "intérieur", "ameublement", "habitat", "logement", "foyer", "家居", "家庭", "家居用品", "家具"},
		subs: []subCategory{
			{"furniture", "furniture-id", []string{"meuble", "table", "chaise", "canapé", "fauteuil", "lit", "armoire", "commode", "étagère", "家具", "桌子", "椅子", "沙发", "床", "衣柜", "橱柜", "架子"}},
			{"decor", "decor-id", []string{"décoration", "déco", "ornement", "cadre", "tableau", "vase", "miroir", "horloge", "装饰", "装饰品", "画框", "花瓶", "镜子", "时钟"}},
			{"kitchen", "kitchen-id", []string{"cuisine", "ustensile", "casserole", "poêle", "assiette", "verre", "couvert", "robot", "厨房", "厨具", "锅", "平底锅", "盘子", "杯子", "餐具", "食品加工机"}},
			{"textiles", "textiles-id", []string{"textile", "linge", "drap", "couette", "oreiller", "serviette", "rideau", "tapis", "家纺", "床上用品", "床单", "被子", "枫头", "毛巾", "窗帘", "地毯"}},
			{"garden", "garden-id", []string{"jardin", "extérieur", "plante", "pot", "outil", "tondeuse", "barbecue", "parasol", "花园", "室外", "植物", "花盆", "园艺工具", "割草机", "烤架", "太阳伞"}},
		},
	},
	{
		name:     "beauty",
		id:       "beauty-category-id",
		keywords: []string{"beauté", "soin", "cosmétique", "bien-être", "santé", "美容", "护肤", "化妆品", "养生", "健康"},
		subs: []subCategory{
			{"skincare", "skincare-id", []string{"soin peau", "visage", "crème", "sérum", "masque", "nettoyant", "hydratant", "护肤", "面部护理", "面霜", "精华液", "面膜", "洁面乳", "保湿"}},
			{"makeup", "makeup-id", []string{"maquillage", "fond de teint", "rouge à lèvres", "mascara", "fard", "poudre", "pinceau", "化妆", "粉底液", "口红", "睡笔", "眉笔", "脸粉", "化妆刷"}},
			{"fragrance", "fragrance-id", []string{"parfum", "eau de toilette", "cologne", "fragrance", "senteur", "香水", "淡香水", "古龙水", "花香", "香氛"}},
			{"haircare", "haircare-id", []string{"cheveux", "shampooing", "après-shampooing", "masque capillaire", "coiffure", "sèche-cheveux", "头发", "洗发水", "护发素", "发膜", "造型", "吹风机"}},
			{"personal_care", "personal-care-id", []string{"hygiène", "savon", "gel douche", "déodorant", "rasoir", "brosse à dents", "dentifrice", "个人护理", "肥皮", "淋浴露", "防汗剂", "剑须刀", "牙刷", "牙膏"}},
		},
	},
	{
		name:     "toys",
		id:       "toys-category-id",
		keywords: []string{"jouet", "jeu", "divertissement", "enfant", "loisir", "玩具", "游戏", "娱乐", "儿童", "休闲"},
		subs: []subCategory{
			{"kids_toys", "kids-toys-id", []string{"jouet enfant", "peluche", "poupée", "figurine", "voiture miniature", "jeu de construction", "儿童玩具", "毛绒玩具", "娃娃", "公仙", "模型车", "积木"}},
			{"board_games", "board-games-id", []string{"jeu de société", "jeu de plateau", "puzzle", "carte", "dé", "stratégie", "桌游", "棋盘游戏", "拼图", "卡牌", "骰子", "策略游戏"}},
			{"video_games", "video-games-id", []string{"jeu vidéo", "console", "manette", "accessoire gaming", "playstation", "xbox", "nintendo", "电子游戏", "游戏机", "手柄", "游戏配件", "索尼", "微软", "任天堂"}},
			{"educational", "educational-id", []string{"éducatif", "apprentissage", "science", "expérience", "robotique", "programmation", "教育玩具", "学习玩具", "科学玩具", "实验玩具", "机器人", "编程"}},
			{"outdoor_toys", "outdoor-toys-id", []string{"jouet extérieur", "plein air", "ballon", "vélo", "trottinette", "piscine", "toboggan", "户外玩具", "室外玩具", "球", "自行车", "滑板车", "游泳池", "滑梯"}},
		},
	},
}

// subOverrideScore 子分类得分达到该值时可以改写主分类。
const subOverrideScore = 3

type mainMatch struct {
	cat   *mainCategory
	score int
}

type subMatch struct {
	main  *mainCategory
	sub   *subCategory
	score int
}

// DetectCategory 根据关键词和标题文本检测商品分类。
//
// 主分类关键词每命中一个计 2 分，子分类关键词计 1 分；
// 没有主分类命中时归入 default。子分类优先在已选主分类下挑选，
// 否则取全局得分最高的子分类，其得分 >= 3 时连同主分类一起改写。
//
// 参数:
//
//	keyword: 搜索关键词，可为空
//	text: 标题文本（通常为原标题加翻译标题）
//
// 返回值:
//
//	model.CategoryInfo: 分类结果，子分类可能为 nil
func DetectCategory(keyword, text string) model.CategoryInfo {
	haystack := strings.ToLower(keyword + " " + text)

	var mains []mainMatch
	var subs []subMatch
	for i := range categoryTable {
		cat := &categoryTable[i]
		if score := 2 * countHits(haystack, cat.keywords); score > 0 {
			mains = append(mains, mainMatch{cat: cat, score: score})
		}
		for j := range cat.subs {
			sub := &cat.subs[j]
			if score := countHits(haystack, sub.keywords); score > 0 {
				subs = append(subs, subMatch{main: cat, sub: sub, score: score})
			}
		}
	}

	info := model.CategoryInfo{MainCategoryID: DefaultCategoryID, MainCategory: DefaultCategory}
	if len(mains) > 0 {
		sort.SliceStable(mains, func(i, j int) bool { return mains[i].score > mains[j].score })
		info.MainCategoryID = mains[0].cat.id
		info.MainCategory = mains[0].cat.name
	}

	var relevant []subMatch
	for _, m := range subs {
		if m.main.name == info.MainCategory {
			relevant = append(relevant, m)
		}
	}

	switch {
	case len(relevant) > 0:
		best := bestSub(relevant)
		info.SubCategoryID = strPtr(best.sub.id)
		info.SubCategory = strPtr(best.sub.name)
	case len(subs) > 0:
		best := bestSub(subs)
		if best.score >= subOverrideScore {
			info.MainCategoryID = best.main.id
			info.MainCategory = best.main.name
			info.SubCategoryID = strPtr(best.sub.id)
			info.SubCategory = strPtr(best.sub.name)
		}
	}
	return info
}

// CategoryIDs 返回所有主分类名到 ID 的映射（包含 default）。
func CategoryIDs() map[string]string {
	out := make(map[string]string, len(categoryTable)+1)
	for _, c := range categoryTable {
		out[c.name] = c.id
	}
	out[DefaultCategory] = DefaultCategoryID
	return out
}

func countHits(haystack string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			n++
		}
	}
	return n
}

func bestSub(matches []subMatch) subMatch {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	return matches[0]
}

func strPtr(s string) *string {
	return &s
}
